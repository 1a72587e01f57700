package cli

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"mawneychat/pkg/models"
)

// dataURI reads path and returns it as a base64 data URI along with the
// message type its content suggests.
func dataURI(path string) (string, models.MessageType, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read attachment: %w", err)
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		ct = http.DetectContentType(b)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	typ := models.MessageDocument
	if strings.HasPrefix(ct, "image/") {
		typ = models.MessageImage
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(b), typ, nil
}
