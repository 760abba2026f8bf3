package response

import "github.com/gin-gonic/gin"

// Envelope is the body of every HTTP response, successful or not.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func Success(c *gin.Context, statusCode int, data any, message string) {
	c.JSON(statusCode, Envelope{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
		Success:    statusCode < 400,
	})
}

func Error(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, Envelope{
		StatusCode: statusCode,
		Message:    message,
		Success:    false,
	})
}
