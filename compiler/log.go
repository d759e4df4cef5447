package compiler

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("mcode.compiler")
