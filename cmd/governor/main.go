// Governor is the configuration governance engine for trading-bot profiles.
//
// Every change to a live profile goes through a draft that is validated,
// previewed for risk, approved where the risk requires it and finally
// published with a backup of what it replaces.
//
// Usage:
//
//	# Propose a change
//	governor draft create --profile spot.yaml --file spot.yaml --actor alice
//
//	# Review the diff, risk flags and publish guard
//	governor draft preview 20260301T120000Z_abcdef01
//
//	# Approve and publish
//	governor draft approve 20260301T120000Z_abcdef01 --actor bob
//	governor draft publish 20260301T120000Z_abcdef01 --digest <preview_digest> \
//	    --confirm "PUBLISH 20260301T120000Z_abcdef01" --actor alice
//
//	# Serve metrics and health, and watch for out-of-band edits
//	governor run --config governor.yaml
package main

import "os"

func main() {
	os.Exit(Execute())
}
