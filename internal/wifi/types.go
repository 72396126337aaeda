package wifi

// NetworkManager constants and enums

// Device type
const (
	NMDeviceTypeUnknown  uint32 = 0
	NMDeviceTypeEthernet uint32 = 1
	NMDeviceTypeWifi     uint32 = 2
)

// 802.11 access point flags
const (
	NM80211APFlagsNone    uint32 = 0
	NM80211APFlagsPrivacy uint32 = 1 << 0
	NM80211APFlagsWPS     uint32 = 1 << 1
)

// 802.11 access point security flags (WpaFlags / RsnFlags)
const (
	NM80211APSecNone             uint32 = 0
	NM80211APSecPairWEP40        uint32 = 1 << 0
	NM80211APSecPairWEP104       uint32 = 1 << 1
	NM80211APSecPairTKIP         uint32 = 1 << 2
	NM80211APSecPairCCMP         uint32 = 1 << 3
	NM80211APSecGroupWEP40       uint32 = 1 << 4
	NM80211APSecGroupWEP104      uint32 = 1 << 5
	NM80211APSecGroupTKIP        uint32 = 1 << 6
	NM80211APSecGroupCCMP        uint32 = 1 << 7
	NM80211APSecKeyMgmtPSK       uint32 = 1 << 8
	NM80211APSecKeyMgmt8021X     uint32 = 1 << 9
	NM80211APSecKeyMgmtSAE       uint32 = 1 << 10
	NM80211APSecKeyMgmtOWE       uint32 = 1 << 11
	NM80211APSecKeyMgmtOWETM     uint32 = 1 << 12
	NM80211APSecKeyMgmtEAPSuiteB uint32 = 1 << 13
)

// SecurityClass maps NetworkManager flags to a +CWLAP security code. Checks run from the
// strongest key management down so mixed-mode networks take the first matching class.
func SecurityClass(flags, wpaFlags, rsnFlags uint32) int {
	all := wpaFlags | rsnFlags

	switch {
	case all&(NM80211APSecKeyMgmt8021X|NM80211APSecKeyMgmtEAPSuiteB) != 0:
		return SecurityEnterprise
	case all&NM80211APSecKeyMgmtPSK != 0:
		return SecurityWPA3PSK
	case all&NM80211APSecKeyMgmtSAE != 0:
		return SecurityWPA3PSK
	case rsnFlags != NM80211APSecNone:
		return SecurityWPA2
	case wpaFlags != NM80211APSecNone:
		return SecurityWPA
	case flags&NM80211APFlagsPrivacy != 0:
		return SecurityWEP
	default:
		return SecurityOpen
	}
}
