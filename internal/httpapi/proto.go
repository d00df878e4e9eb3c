package httpapi

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"google.golang.org/protobuf/proto"
)

// maxRequestBody caps query bodies in either encoding. Sensor templates
// are at most a few KiB of base64.
const maxRequestBody = 64 * 1024

const protobufType = "application/x-protobuf"

var protobufTypes = map[string]bool{
	protobufType:               true,
	"application/protobuf":     true,
	"application/octet-stream": true,
}

func mediaType(v string) string {
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return mt
}

// isProtobuf reports whether the request body is a protobuf Struct.
func isProtobuf(r *http.Request) bool {
	return protobufTypes[mediaType(r.Header.Get("Content-Type"))]
}

// wantsProtobuf reports whether the response should be protobuf: either
// Accept names a protobuf type or the request itself was protobuf and
// Accept does not ask for JSON.
func wantsProtobuf(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt := mediaType(strings.TrimSpace(part))
		if protobufTypes[mt] {
			return true
		}
		if mt == "application/json" {
			return false
		}
	}
	return isProtobuf(r)
}

func readProto(w http.ResponseWriter, r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return proto.Unmarshal(body, msg)
}

func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	w.Header().Set("Content-Type", protobufType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
