// tikzjax-engine-script serves the bundled script engine as an executable engine so it can
// be swapped for another tikzjax-engine-* binary on $PATH.
package main

import (
	"oss.terrastruct.com/util-go/xmain"

	"oss.terrastruct.com/tikzjax/tzengine"
)

func main() {
	xmain.Main(tzengine.Serve(tzengine.ScriptEngine))
}
