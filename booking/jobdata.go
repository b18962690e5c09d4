package booking

// JobForLabels renders the job's audience requirements as the Swedish labels
// used in notification payloads.
func JobForLabels(job Job) []string {
	labels := []string{}

	if job.Gender != nil {
		if *job.Gender == "male" {
			labels = append(labels, "Man")
		} else {
			labels = append(labels, "Kvinna")
		}
	}

	switch job.Certified {
	case CertifiedNone:
	case CertifiedBoth:
		labels = append(labels, "Godkänd tolk", "Auktoriserad")
	case CertifiedYes:
		labels = append(labels, "Auktoriserad")
	case CertifiedNHealth:
		labels = append(labels, "Sjukvårdstolk")
	case CertifiedLaw, CertifiedNLaw:
		labels = append(labels, "Rätttstolk")
	default:
		labels = append(labels, string(job.Certified))
	}

	return labels
}

// jobForDescription renders the same requirements with the raw keys the
// create response uses.
func jobForDescription(job Job) []string {
	desc := []string{}

	if job.Gender != nil {
		if *job.Gender == "male" {
			desc = append(desc, "Man")
		} else {
			desc = append(desc, "Kvinna")
		}
	}

	switch job.Certified {
	case CertifiedNone:
	case CertifiedBoth:
		desc = append(desc, "normal", "certified")
	case CertifiedYes:
		desc = append(desc, "certified")
	default:
		desc = append(desc, string(job.Certified))
	}

	return desc
}

// yesNo renders a boolean flag the way the mobile clients expect it.
func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
