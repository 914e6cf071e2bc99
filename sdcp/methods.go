package sdcp

// Method codes are the integer command identifiers carried in CommandEnvelope.Method
// and ResponseEnvelope.Method. The numbering follows SDCP's category bands;
// codes below are the ones the core actually issues or recognizes — unknown
// codes encountered on the wire are passed through untouched (sdcp.Frame
// round-trips whatever it doesn't recognize, per spec.md §4.1).
const (
	// Attributes / status
	MethodGetAttributes = 1000
	MethodGetStatus      = 1002

	// Print control
	MethodStartPrint  = 1010
	MethodPausePrint  = 1011
	MethodResumePrint = 1012
	MethodStopPrint   = 1013

	// Motion
	MethodHome           = 1020
	MethodSetPrintSpeed  = 1022

	// Temperature
	MethodSetNozzleTemp = 1030
	MethodSetBedTemp    = 1031

	// Peripheral (fans, light)
	MethodSetFanSpeed = 1040
	MethodSetLight    = 1041

	// File / disk
	MethodListFiles     = 1044
	MethodGetDiskInfo    = 1045
	MethodGetFileDetail = 1046
	MethodGetThumbnail  = 1047

	// Video
	MethodEnableVideoStream = 1050

	// Canvas / AMS (FDM multi-filament)
	MethodGetCanvasStatus = 1060

	// Status push (event, not request/response)
	MethodStatusEvent = 6000

	// Discovery (CC2 UDP dialect)
	MethodDiscoverCC2 = 7000
)

// LightPowerParam is the correct CC2 light-control parameter key. The
// documented "brightness" key does not work on real firmware — implementations
// MUST emit "power" instead (spec.md §4.4, "CC2 light-control correction").
const LightPowerParam = "power"
