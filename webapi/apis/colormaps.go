package apis

import (
	"encoding/json"

	"github.com/shaharia-lab/cate/webapi"
)

// ColorMapsAPI lists the color maps available for image layers.
type ColorMapsAPI struct {
	caller Caller
}

// NewColorMapsAPI creates a ColorMapsAPI calling through caller.
func NewColorMapsAPI(caller Caller) *ColorMapsAPI {
	return &ColorMapsAPI{caller: caller}
}

// GetColorMaps requests all color map categories.
func (a *ColorMapsAPI) GetColorMaps() *webapi.Job {
	return a.caller.Call("get_color_maps", []any{}, nil)
}

// DecodeColorMaps decodes the response of GetColorMaps.
func DecodeColorMaps(raw json.RawMessage) ([]ColorMapCategory, error) {
	return decode[[]ColorMapCategory]("get_color_maps", raw)
}
