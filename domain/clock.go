package domain

import "time"

// ClockSkew is the grace window applied uniformly to expiry and not-before
// checks across key and token validation, so that small clock differences
// between instances never invalidate a freshly issued credential.
const ClockSkew = 5 * time.Second
