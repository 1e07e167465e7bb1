package sale

import "github.com/ethereum/go-ethereum/common"

var (
	initKey            = []byte("sale/init")
	saleConfigKey      = []byte("sale/config")
	securityConfigKey  = []byte("sale/security")
	pricingConfigKey   = []byte("sale/pricing")
	purchaseVestingKey = []byte("sale/vesting/purchase")
	airdropVestingKey  = []byte("sale/vesting/airdrop")
	pausedKey          = []byte("sale/paused")
	signersKey         = []byte("sale/msig/signers")
	thresholdKey       = []byte("sale/msig/threshold")
	sequenceKey        = []byte("sale/purchase/seq")
	purchaseIndexKey   = []byte("sale/purchase/index")
	unsoldWithdrawnKey = []byte("sale/unsold-withdrawn")

	userPrefix     = []byte("sale/user/")
	statusPrefix   = []byte("sale/status/")
	paymentPrefix  = []byte("sale/payment/")
	approvalPrefix = []byte("sale/msig/approval/")
	purchasePrefix = []byte("sale/purchase/rec/")
)

func userKey(addr common.Address) []byte {
	return addressKey(userPrefix, addr)
}

func statusKey(addr common.Address) []byte {
	return addressKey(statusPrefix, addr)
}

func paymentKey(id string) []byte {
	key := make([]byte, len(paymentPrefix)+len(id))
	copy(key, paymentPrefix)
	copy(key[len(paymentPrefix):], id)
	return key
}

func approvalKey(action string) []byte {
	key := make([]byte, len(approvalPrefix)+len(action))
	copy(key, approvalPrefix)
	copy(key[len(approvalPrefix):], action)
	return key
}

func purchaseKey(id string) []byte {
	key := make([]byte, len(purchasePrefix)+len(id))
	copy(key, purchasePrefix)
	copy(key[len(purchasePrefix):], id)
	return key
}

func addressKey(prefix []byte, addr common.Address) []byte {
	key := make([]byte, len(prefix)+common.AddressLength)
	copy(key, prefix)
	copy(key[len(prefix):], addr.Bytes())
	return key
}
