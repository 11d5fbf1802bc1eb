// Package schemas embeds the JSON Schemas for data accepted from outside the service.
package schemas

import "embed"

// FS holds every *.schema.json file in this directory.
//
//go:embed *.schema.json
var FS embed.FS
