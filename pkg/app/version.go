package app

import "github.com/small-frappuccino/modcore/pkg/util"

// AppVersion is the version reported at startup and by /botinfo.
func AppVersion() string {
	return util.AppVersion
}

// SetAppVersion overrides the version, usually from main via -ldflags.
func SetAppVersion(v string) {
	util.AppVersion = v
}
