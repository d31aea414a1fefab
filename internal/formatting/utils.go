package formatting

import (
	"encoding/json"
	"fmt"

	"switchyard/internal/api"
	pkgstrings "switchyard/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/text"
)

// PrettyJSON formats any value as indented JSON for human-readable display.
// It falls back to fmt's %v formatting when the value cannot be marshalled.
//
// Example:
//
//	data := map[string]interface{}{"name": "test", "value": 42}
//	fmt.Println(formatting.PrettyJSON(data))
//	// Output:
//	// {
//	//   "name": "test",
//	//   "value": 42
//	// }
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// truncate keeps table cells on one line.
func truncate(s string, max int) string {
	return pkgstrings.Truncate(s, max)
}

func statusColor(s api.ServerStatus) text.Colors {
	switch s {
	case api.StatusOnline:
		return text.Colors{text.FgHiGreen}
	case api.StatusStarting, api.StatusMaintenance:
		return text.Colors{text.FgHiYellow}
	case api.StatusError:
		return text.Colors{text.FgHiRed}
	default:
		return text.Colors{text.FgHiBlack}
	}
}
