package cls

// urgency bucket of an expiring institution
type Tier int

const (
	TierUrgent Tier = iota
	TierWarning
	TierNotice
)

// Fixed day boundaries of the tiers. These do not follow the configured
// NOTIFICATION_URGENT_THRESHOLD / NOTIFICATION_WARNING_THRESHOLD values.
const (
	UrgentMaxDays  = 7
	WarningMaxDays = 30
)

// For urgency colouring use the following colours
const (
	ColourUrgent  = "#FF0000" // red
	ColourWarning = "#FFA500" // orange
	ColourNotice  = "#FFFF00" // yellow
)

func (t Tier) String() string {
	switch t {
	case TierUrgent:
		return "urgent"
	case TierWarning:
		return "warning"
	default:
		return "notice"
	}
}

// get the tier an institution with days remaining falls into
func TierFor(days int) Tier {
	if days <= UrgentMaxDays {
		return TierUrgent
	} else if days <= WarningMaxDays {
		return TierWarning
	}
	return TierNotice
}

// hex colour for an institution with days remaining
func UrgencyColour(days int) string {
	if days <= UrgentMaxDays {
		return ColourUrgent
	} else if days <= WarningMaxDays {
		return ColourWarning
	}
	return ColourNotice
}

// split institutions into their tiers, keeping the input order in each
func Partition(insts []Institution) (urgent, warning, notice []Institution) {
	for _, inst := range insts {
		switch TierFor(inst.DaysUntilExpiry) {
		case TierUrgent:
			urgent = append(urgent, inst)
		case TierWarning:
			warning = append(warning, inst)
		default:
			notice = append(notice, inst)
		}
	}
	return urgent, warning, notice
}
