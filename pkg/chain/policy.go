package chain

// MissingFromRequired is the single-signature policy: every required
// authorization needs its own signature.
func MissingFromRequired(required []Authorization, signed func(Authorization) bool) []Authorization {
	if len(required) == 0 {
		return []Authorization{}
	}
	var missing []Authorization
	for _, auth := range required {
		if !signed(auth) {
			missing = append(missing, auth)
		}
	}
	return missing
}

// MissingFromThreshold is the multisig policy: any threshold distinct owners
// suffice, each owner counting with weight 1.
func MissingFromThreshold(owners []Authorization, threshold int, signed func(Authorization) bool) []Authorization {
	if threshold <= 0 || len(owners) == 0 {
		return []Authorization{}
	}
	count := 0
	var unsigned []Authorization
	for _, owner := range owners {
		if signed(owner) {
			count++
			continue
		}
		unsigned = append(unsigned, owner)
	}
	if count >= threshold {
		return nil
	}
	return unsigned
}
