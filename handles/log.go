package handles

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("protoheap.handles")
