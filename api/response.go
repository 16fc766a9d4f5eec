package api

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/gin-gonic/gin"

	"github.com/geopods/podflow/internal/units"
)

// EvalMetadata is the JSON part of an eval response's multipart/mixed body:
// enough shape information for a caller to reinterpret the raw buffer that
// follows it without re-deriving it from the request.
type EvalMetadata struct {
	Dims  []string `json:"dims"`
	Shape []int    `json:"shape"`
	Dtype string   `json:"dtype"`
}

func encodeFloat32LE(values []float64) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	return buf
}

// writeResponse serves metadata and the evaluated array as a multipart/
// mixed body: one JSON part describing shape and dtype, followed by one
// application/octet-stream part holding the raw buffer.
func writeResponse(ctx *gin.Context, result *units.Array) error {
	metadata := EvalMetadata{Dims: result.Dims, Shape: result.Shape, Dtype: "float32"}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	writer := multipart.NewWriter(ctx.Writer)
	ctx.Status(http.StatusOK)
	ctx.Header("Content-Type", "multipart/mixed; boundary="+writer.Boundary())

	metaPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json"}})
	if err != nil {
		return err
	}
	if _, err := metaPart.Write(metadataJSON); err != nil {
		return err
	}

	dataPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/octet-stream"}})
	if err != nil {
		return err
	}
	if _, err := dataPart.Write(encodeFloat32LE(result.Values)); err != nil {
		return err
	}

	return writer.Close()
}
