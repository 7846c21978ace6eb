package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/BaSui01/genflow/types"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

// Bind 校验 Content-Type 并把 JSON 请求体严格解码到 dst：
// 未知字段、多余的尾随值、超过 maxBodyBytes 都会被拒绝。
// 返回的错误总是 *types.Error，可直接交给 Fail。
func Bind(w http.ResponseWriter, r *http.Request, dst any) error {
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt != "application/json" {
		return types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json").
			WithHTTPStatus(http.StatusUnsupportedMediaType)
	}
	if r.Body == nil || r.Body == http.NoBody {
		return types.NewError(types.ErrInvalidRequest, "request body is empty")
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return bindError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return types.NewError(types.ErrInvalidRequest, "request body must contain a single JSON object")
	}
	return nil
}

func bindError(err error) *types.Error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return types.NewError(types.ErrInvalidRequest, "request body too large").
			WithCause(err).
			WithHTTPStatus(http.StatusRequestEntityTooLarge)
	case errors.Is(err, io.EOF):
		return types.NewError(types.ErrInvalidRequest, "request body is empty")
	default:
		return types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err)
	}
}
