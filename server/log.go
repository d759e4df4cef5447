package server

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("mcode.server")
