package serversdk

import (
	"fmt"
	"runtime"

	"github.com/denisbrodbeck/machineid"

	"github.com/savebox/savebox/internal/utils"
	"github.com/savebox/savebox/internal/version"
)

const (
	HeaderDeviceID = "X-SaveBox-Device-Id"
	HeaderVersion  = "X-SaveBox-Version"
)

// UserAgent identifies the client build to the backend.
var UserAgent = fmt.Sprintf("SaveBox/%s (%s; %s; %s)",
	version.Version,
	version.Revision,
	runtime.GOOS,
	runtime.GOARCH,
)

// deviceID tags requests with a stable per-install identifier without
// leaking the raw machine id. Falls back to a random token when the
// platform provides none.
func deviceID() string {
	if id, err := machineid.ProtectedID("savebox"); err == nil && len(id) >= 16 {
		return id[:16]
	}
	return utils.TokenHex(8)
}

// SaveNamesResponse lists the saves the server holds.
type SaveNamesResponse struct {
	Names []string `json:"names"`
}

// SaveHashResponse carries the server-side container hash of one save.
type SaveHashResponse struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// UploadResponse acknowledges a stored container.
type UploadResponse struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}
