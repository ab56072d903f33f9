package archive2

// Message2 RDA Status Data (User 3.2.4.6)
type Message2 struct {
	RDAStatus                       uint16
	OperabilityStatus               uint16
	ControlStatus                   uint16
	AuxPowerGeneratorState          uint16
	AvgTxPower                      uint16
	HorizRefCalibCorr               uint16
	DataTxEnabled                   uint16
	VolumeCoveragePatternNum        uint16
	RDAControlAuth                  uint16
	RDABuild                        uint16
	OperationalMode                 uint16
	SuperResStatus                  uint16
	ClutterMitigationDecisionStatus uint16
	AvsetStatus                     uint16
	RDAAlarmSummary                 uint16
	CommandAck                      uint16
	ChannelControlStatus            uint16
	SpotBlankingStatus              uint16
	BypassMapGenDate                uint16
	BypassMapGenTime                uint16
	ClutterFilterMapGenDate         uint16
	ClutterFilterMapGenTime         uint16
	VertRefCalibCorr                uint16
	TransitionPwrSourceStatus       uint16
	RMSControlStatus                uint16
	PerformanceCheckStatus          uint16
	AlarmCodes                      uint16
	Spares                          [20]byte
}

// GetBuildNumber decodes RDABuild as a fixed-point build number (e.g. 1904
// means build 19.04), the form NewMessage31 needs to pick the right data
// block pointer count.
func (m Message2) GetBuildNumber() float32 {
	return float32(m.RDABuild) / 100
}

var rdaStatusNames = map[uint16]string{
	0: "none",
	1: "start-up",
	2: "standby",
	3: "restart",
	4: "operate",
	5: "spare",
	6: "off-line-operate",
}

// GetRDAStatus renders RDAStatus for logging.
func (m Message2) GetRDAStatus() string {
	if s, ok := rdaStatusNames[m.RDAStatus]; ok {
		return s
	}
	return "unknown"
}

var operabilityStatusNames = map[uint16]string{
	0: "on-line",
	1: "maintenance-action-required",
	2: "maintenance-action-mandatory",
	3: "commanded-shut-down",
	4: "inoperable",
	5: "automatic-calibration",
}

// GetOperabilityStatus renders OperabilityStatus for logging.
func (m Message2) GetOperabilityStatus() string {
	if s, ok := operabilityStatusNames[m.OperabilityStatus]; ok {
		return s
	}
	return "unknown"
}
