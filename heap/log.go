package heap

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("protoheap.heap")
