//go:build !cgo
// +build !cgo

package embedding

import "errors"

// ONNXProvider stub type when built without CGO (see onnx.go for the real implementation).
type ONNXProvider struct{ Provider }

// NewONNXProvider returns an error when built without CGO.
func NewONNXProvider(_, _ string, _, _ int) (*ONNXProvider, error) {
	return nil, errors.New("onnx embedding provider requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}
