package llm

import "encoding/base64"

// PNGDataURL inlines a PNG for vision requests.
func PNGDataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
