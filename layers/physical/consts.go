package physical

const (
	// MTU (maximum transmission unit) is the maximum number of bytes that
	// are allowed on the payload of the physical layer. Real radios cap
	// the on-air payload at the hardware level, usually somewhere between
	// 32 and 256 bytes depending on the transceiver. Since we are creating
	// a hypothetical radio on top of something else (which happens to be
	// UDP in our choice), we pick 128, a common figure for low-power
	// transceivers and comfortably below any practical UDP limit.
	MTU = 128

	channelSize = 1024

	promNamespace = "physical_layer"
)
