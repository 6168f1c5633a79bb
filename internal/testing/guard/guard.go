// Package guard puts erp and worker into test mode when a test binary imports it.
package guard

import "github.com/feemaison/bakery-erp/internal/app"

func init() {
	app.SetTestMode(true)
}
