// Command throttlesim compiles throttle definitions and replays or serves
// deterministic throttling decisions.
package main

import (
	"os"

	"k8s.io/klog/v2"
)

func main() {
	defer klog.Flush()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
