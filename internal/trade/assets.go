package trade

import "strings"

// Base mainnet assets the custody service knows by symbol. Anything else is
// passed through untouched and treated as a contract address.
var assetMap = map[string]string{
	"ETH":  "eth",
	"CBTC": "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf",
	"USDC": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
}

func ResolveAsset(asset string) string {
	if id, ok := assetMap[strings.ToUpper(asset)]; ok {
		return id
	}
	return asset
}
