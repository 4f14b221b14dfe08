package mqttmirror

import (
	"fmt"
	"strings"
)

// Topics builds the notification topics of one device.
//
//	N/<portal>/<category>/<instance>/<path>
//
// e.g. N/virtual/battery/100/Dc/0/Voltage
type Topics struct {
	PortalID string
	Category string
	Instance string
}

// Value returns the topic a property's value is published on.
func (t Topics) Value(path string) string {
	return fmt.Sprintf("%s/%s", t.prefix(), strings.TrimPrefix(path, "/"))
}

// Status returns the retained online/offline topic of the device.
func (t Topics) Status() string {
	return t.prefix() + "/Connected"
}

func (t Topics) prefix() string {
	return fmt.Sprintf("N/%s/%s/%s", t.PortalID, t.Category, t.Instance)
}
