package handler

import "quiz-api/internal/transport/http/validate"

var (
	userParams = validate.Schema{
		"userId": {Type: validate.String, Required: true},
	}
	quizParams = validate.Schema{
		"quizId": {Type: validate.String, Required: true},
	}
	enrollParams = validate.Schema{
		"userId": {Type: validate.String, Required: true},
		"quizId": {Type: validate.String, Required: true},
	}

	createUserBody = validate.Schema{
		"name": {Type: validate.String, Required: true, Min: validate.Limit(1)},
	}
	updateUserBody = validate.Schema{
		"name": {Type: validate.String, Min: validate.Limit(1)},
	}

	createQuizBody = validate.Schema{
		"name":        {Type: validate.String, Required: true, NotBlank: true},
		"description": {Type: validate.String, NotBlank: true},
		"active":      {Type: validate.Bool, Default: false},
	}
	updateQuizBody = validate.Schema{
		"name":        {Type: validate.String, NotBlank: true},
		"description": {Type: validate.String, NotBlank: true},
		"active":      {Type: validate.Bool},
	}
	listQuizQuery = validate.Schema{
		"limit": {Type: validate.Int, Default: 10, Min: validate.Limit(1), Max: validate.Limit(100)},
	}

	// 入群请求体为空对象，多余字段直接剔除
	emptyBody = validate.Schema{}
)
