package schedule

// Assessment answer keys and values recognized by the mapper.
const (
	AnswerEnergyLevel = "energy-level"
	AnswerSupport     = "support-preference"
	AnswerStructure   = "structure-preference"
)

// energyProfile is one row of the energy-level mapping table.
type energyProfile struct {
	hours []string
	peaks []EnergyPeak
}

// energyProfiles maps the energy-level answer to productive hours and
// peaks. Higher energy gets more, earlier slots and two peaks; low energy
// gets fewer, later slots and one.
var energyProfiles = map[string]energyProfile{
	"high": {
		hours: []string{"07:00", "09:00", "10:00", "14:00", "16:00"},
		peaks: []EnergyPeak{PeakMorning, PeakAfternoon},
	},
	"moderate": {
		hours: []string{"09:00", "10:00", "14:00", "15:00"},
		peaks: []EnergyPeak{PeakMorning},
	},
	"low": {
		hours: []string{"10:00", "11:00", "15:00"},
		peaks: []EnergyPeak{PeakAfternoon},
	},
}

// sessionMinutes maps the support-preference answer to session length.
var sessionMinutes = map[string]int{
	"independent":   30,
	"guided":        20,
	"collaborative": 25,
}

const (
	defaultEnergy  = "moderate"
	defaultSupport = "guided"
)

// MapAnswers converts questionnaire answers into scheduling preferences.
// Unrecognized or missing answers fall back to the moderate defaults; the
// mapper never fails and never returns partial preferences.
func MapAnswers(answers map[string]string) Preference {
	profile, ok := energyProfiles[answers[AnswerEnergyLevel]]
	if !ok {
		profile = energyProfiles[defaultEnergy]
	}

	minutes, ok := sessionMinutes[answers[AnswerSupport]]
	if !ok {
		minutes = sessionMinutes[defaultSupport]
	}

	return Preference{
		ProductiveHours: append([]string(nil), profile.hours...),
		EnergyPeaks:     append([]EnergyPeak(nil), profile.peaks...),
		SessionMinutes:  minutes,
		DoNotDisturb:    []string{"21:00-07:00"},
	}
}
