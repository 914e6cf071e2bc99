package client

import "github.com/elegoo-bridge/core/sdcp"

// CommandKind names a typed printer operation, independent of which wire
// dialect the underlying session speaks. Invoke maps a CommandKind to the
// right sdcp method code for the connected printer's protocol.
type CommandKind string

const (
	CmdGetAttributes     CommandKind = "get_attributes"
	CmdGetStatus         CommandKind = "get_status"
	CmdStartPrint        CommandKind = "start_print"
	CmdPausePrint        CommandKind = "pause_print"
	CmdResumePrint       CommandKind = "resume_print"
	CmdStopPrint         CommandKind = "stop_print"
	CmdSetNozzleTemp     CommandKind = "set_nozzle_temp"
	CmdSetBedTemp        CommandKind = "set_bed_temp"
	CmdSetFanSpeed       CommandKind = "set_fan_speed"
	CmdSetLight          CommandKind = "set_light"
	CmdSetPrintSpeedMode CommandKind = "set_print_speed_mode"
	CmdEnableVideoStream CommandKind = "enable_video_stream"
	CmdListFiles         CommandKind = "list_files"
	CmdGetFileDetail     CommandKind = "get_file_detail"
	CmdGetDiskInfo       CommandKind = "get_disk_info"
	CmdGetCanvasStatus   CommandKind = "get_canvas_status"
)

// commandMethods maps each CommandKind to its sdcp method code. Shared
// across dialects: the method numbering is SDCP's own, not per-transport.
var commandMethods = map[CommandKind]int{
	CmdGetAttributes:     sdcp.MethodGetAttributes,
	CmdGetStatus:         sdcp.MethodGetStatus,
	CmdStartPrint:        sdcp.MethodStartPrint,
	CmdPausePrint:        sdcp.MethodPausePrint,
	CmdResumePrint:       sdcp.MethodResumePrint,
	CmdStopPrint:         sdcp.MethodStopPrint,
	CmdSetNozzleTemp:     sdcp.MethodSetNozzleTemp,
	CmdSetBedTemp:        sdcp.MethodSetBedTemp,
	CmdSetFanSpeed:       sdcp.MethodSetFanSpeed,
	CmdSetLight:          sdcp.MethodSetLight,
	CmdSetPrintSpeedMode: sdcp.MethodSetPrintSpeed,
	CmdEnableVideoStream: sdcp.MethodEnableVideoStream,
	CmdListFiles:         sdcp.MethodListFiles,
	CmdGetFileDetail:     sdcp.MethodGetFileDetail,
	CmdGetDiskInfo:       sdcp.MethodGetDiskInfo,
	CmdGetCanvasStatus:   sdcp.MethodGetCanvasStatus,
}

// ccLightPowerParam rewrites the documented (but wrong on real firmware)
// brightness parameter into the one CC2 printers actually accept.
func ccLightPowerParam(params map[string]any) map[string]any {
	if params == nil {
		return params
	}
	if _, ok := params["brightness"]; !ok {
		return params
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == "brightness" {
			continue
		}
		out[k] = v
	}
	on := 0
	if b, ok := params["brightness"].(float64); ok && b > 0 {
		on = 1
	}
	if b, ok := params["brightness"].(int); ok && b > 0 {
		on = 1
	}
	out["power"] = on
	return out
}
