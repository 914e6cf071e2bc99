package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCcLightPowerParam_RewritesBrightness(t *testing.T) {
	out := ccLightPowerParam(map[string]any{"brightness": float64(255)})
	assert.Equal(t, 1, out["power"])
	_, hasBrightness := out["brightness"]
	assert.False(t, hasBrightness)
}

func TestCcLightPowerParam_ZeroBrightnessTurnsOff(t *testing.T) {
	out := ccLightPowerParam(map[string]any{"brightness": float64(0)})
	assert.Equal(t, 0, out["power"])
}

func TestCcLightPowerParam_LeavesOtherParamsUntouched(t *testing.T) {
	out := ccLightPowerParam(map[string]any{"other": "x"})
	assert.Equal(t, map[string]any{"other": "x"}, out)
}

func TestCommandMethods_CoverEveryDeclaredKind(t *testing.T) {
	kinds := []CommandKind{
		CmdGetAttributes, CmdGetStatus, CmdStartPrint, CmdPausePrint, CmdResumePrint,
		CmdStopPrint, CmdSetNozzleTemp, CmdSetBedTemp, CmdSetFanSpeed, CmdSetLight,
		CmdSetPrintSpeedMode, CmdEnableVideoStream, CmdListFiles, CmdGetFileDetail,
		CmdGetDiskInfo, CmdGetCanvasStatus,
	}
	for _, k := range kinds {
		_, ok := commandMethods[k]
		assert.True(t, ok, "missing method mapping for %s", k)
	}
}
