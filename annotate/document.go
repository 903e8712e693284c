package annotate

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"strings"
)

const pngDataURLPrefix = "data:image/png;base64,"

// EncodeDataURL re-encodes img losslessly as a PNG data URL.
func EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("annotate: encode png: %w", err)
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL decodes a base64 image data URL as returned by
// canvas.toDataURL().
func DecodeDataURL(s string) (image.Image, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, fmt.Errorf("annotate: not a data URL")
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return nil, fmt.Errorf("annotate: data URL has no payload")
	}
	if !strings.HasSuffix(s[:comma], ";base64") {
		return nil, fmt.Errorf("annotate: data URL is not base64")
	}
	raw, err := base64.StdEncoding.DecodeString(s[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("annotate: data URL payload: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("annotate: decode data URL image: %w", err)
	}
	return img, nil
}

// resultGlobal is the promise the document resolves with the canvas data URL.
const resultGlobal = "__annotated"

type documentData struct {
	Width, Height int
	Source        string
	Percent       float64
	Stamp         string
}

var documentTmpl = template.Must(template.New("annotate").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="margin:0">
<canvas id="c" width="{{.Width}}" height="{{.Height}}"></canvas>
<script>
window.__annotated = new Promise(function (resolve, reject) {
  var canvas = document.getElementById('c');
  var ctx = canvas.getContext('2d');
  var img = new Image();
  img.onload = function () {
    var w = canvas.width, h = canvas.height;
    ctx.filter = 'grayscale(' + {{.Percent}} + '%)';
    ctx.drawImage(img, 0, 0);
    ctx.filter = 'none';
    var stamp = {{.Stamp}};
    if (stamp) {
      ctx.fillStyle = '#fff';
      ctx.font = 'bold ' + (h / 6) + 'px sans-serif';
      ctx.textAlign = 'center';
      ctx.shadowColor = 'black';
      ctx.shadowBlur = 20;
      ctx.fillText(stamp, w / 2, h - h / 9);
    }
    resolve(canvas.toDataURL('image/png'));
  };
  img.onerror = function () { reject(new Error('embedded image failed to load')); };
  img.src = {{.Source}};
});
</script>
</body></html>
`))

// Document builds the rendering document for img: a canvas of the image's
// size and a script that draws the filtered, stamped image and resolves
// window.__annotated with the canvas contents.
func Document(img image.Image, p Params) (string, error) {
	src, err := EncodeDataURL(img)
	if err != nil {
		return "", err
	}
	b := img.Bounds()
	var buf strings.Builder
	err = documentTmpl.Execute(&buf, documentData{
		Width:   b.Dx(),
		Height:  b.Dy(),
		Source:  src,
		Percent: p.normalized().Desaturate,
		Stamp:   p.Stamp,
	})
	if err != nil {
		return "", fmt.Errorf("annotate: document: %w", err)
	}
	return buf.String(), nil
}
