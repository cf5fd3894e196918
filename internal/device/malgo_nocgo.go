//go:build !cgo

package device

import (
	"errors"

	"go.uber.org/zap"
)

func newMalgoDevices(*zap.Logger) (Devices, error) {
	return nil, errors.New("the malgo backend needs cgo; rebuild with CGO_ENABLED=1 or use -audio ffmpeg")
}
