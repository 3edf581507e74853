package snapshot

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("protoheap.snapshot")
