package cdp

import (
	_ "embed"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/wishsort/internal/config"
	"github.com/xkilldash9x/wishsort/internal/wishlist"
)

//go:embed js/wishsort.js
var helperSource string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// bindingName is the window function the page calls to report user activations.
const bindingName = "__wishsortEvent"

// helperConfig is handed to the page helpers on every call.
type helperConfig struct {
	Binding   string            `json:"binding"`
	ButtonID  string            `json:"button_id"`
	OptionID  string            `json:"option_id"`
	LabelID   string            `json:"label_id"`
	ItemClass string            `json:"item_class"`
	Marker    string            `json:"marker"`
	Selectors helperSelectorSet `json:"selectors"`
}

type helperSelectorSet struct {
	ListInner        int    `json:"list_inner_index"`
	List             string `json:"list"`
	Row              string `json:"row"`
	Section          string `json:"section"`
	Header           string `json:"header"`
	CollectionHeader string `json:"collection_header"`
	ForeignMarker    string `json:"foreign_marker"`
	Menu             string `json:"menu"`
	MenuItem         string `json:"menu_item"`
	MenuPointer      string `json:"menu_pointer"`
	MenuLabel        string `json:"menu_label"`
}

// script builds JavaScript expressions calling into the page helpers.
type script struct {
	prefix string
}

func newScript(sel config.SelectorConfig) (*script, error) {
	if strings.TrimSpace(helperSource) == "" {
		return nil, fmt.Errorf("embedded page helpers are empty")
	}
	cfg, err := json.Marshal(helperConfig{
		Binding:   bindingName,
		ButtonID:  wishlist.TriggerButtonID,
		OptionID:  wishlist.TriggerOptionID,
		LabelID:   wishlist.SortLabelID,
		ItemClass: wishlist.TriggerItemClass,
		Marker:    wishlist.WiredMarkerAttr,
		Selectors: helperSelectorSet{
			ListInner:        sel.ListInner,
			List:             sel.List,
			Row:              sel.Row,
			Section:          sel.Section,
			Header:           sel.Header,
			CollectionHeader: sel.CollectionHeader,
			ForeignMarker:    sel.ForeignMarker,
			Menu:             sel.Menu,
			MenuItem:         sel.MenuItem,
			MenuPointer:      sel.MenuPointer,
			MenuLabel:        sel.MenuLabel,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode helper config: %w", err)
	}
	return &script{prefix: "(" + helperSource + "\n)(" + string(cfg) + ")"}, nil
}

// call returns an expression invoking op with JSON encoded args.
func (s *script) call(op string, args ...any) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("failed to encode argument %d of %s: %w", i, op, err)
		}
		parts[i] = string(b)
	}
	return fmt.Sprintf("%s.%s(%s)", s.prefix, op, strings.Join(parts, ", ")), nil
}
