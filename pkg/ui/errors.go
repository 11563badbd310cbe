package ui

import (
	"github.com/arthur-debert/dotdeploy/pkg/errors"
)

func errorDocument(err error) map[string]string {
	return map[string]string{
		"code":    string(errors.GetErrorCode(err)),
		"message": err.Error(),
	}
}
