package platform

import (
	"github.com/sshcollectorpro/versionboard/internal/model"
	"github.com/sshcollectorpro/versionboard/internal/parse"
)

// CiscoIOS Cisco IOS 平台配置
var CiscoIOS = Profile{
	Name:            model.DeviceTypeCiscoIOS,
	SessionPrep:     []string{"terminal length 0", "terminal width 511"},
	EnableCommand:   "enable",
	HostnameCommand: "show running-config | include hostname",
	VersionCommand:  "show version",
	ParseHostname:   parse.Hostname,
	ParseVersion:    parse.Version,
}

func init() {
	Register(CiscoIOS)
}
