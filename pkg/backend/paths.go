package backend

import (
	"fmt"
	"net/url"
	"time"

	"github.com/oapi-codegen/runtime"
)

// Static resource paths.
const (
	HealthPath    = "/health"
	InventoryPath = "/inventory"
	SurplusPath   = "/inventory/surplus"
	SpoilagePath  = "/inventory/spoilage"
	MenuPath      = "/menu"
)

// InventoryItemPath is /inventory/{id}.
func InventoryItemPath(id string) (string, error) {
	pathParam0, err := runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/inventory/%s", pathParam0), nil
}

// InventoryTransferPath is /inventory/{id}/transfer.
func InventoryTransferPath(id string) (string, error) {
	pathParam0, err := runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/inventory/%s/transfer", pathParam0), nil
}

// MenuItemPath is /menu/{id}.
func MenuItemPath(id string) (string, error) {
	pathParam0, err := runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/menu/%s", pathParam0), nil
}

// SalesReportPath is /sales/report with an inclusive date range.
func SalesReportPath(from, to time.Time) (string, error) {
	queryValues := url.Values{}

	for name, value := range map[string]string{
		"from": from.Format(time.DateOnly),
		"to":   to.Format(time.DateOnly),
	} {
		queryFrag, err := runtime.StyleParamWithLocation("form", true, name, runtime.ParamLocationQuery, value)
		if err != nil {
			return "", err
		}
		parsed, err := url.ParseQuery(queryFrag)
		if err != nil {
			return "", err
		}
		for k, v := range parsed {
			for _, v2 := range v {
				queryValues.Add(k, v2)
			}
		}
	}

	return "/sales/report?" + queryValues.Encode(), nil
}
