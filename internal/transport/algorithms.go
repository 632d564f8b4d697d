package transport

// Key exchange and host key algorithm preference lists, modern-first,
// ported from the algorithm strings libssh2 was configured with in the
// original client. strictKEX/strictHostKeyAlgorithms restrict to the non-NIST subset
// for ConnectionParameters.StrictCrypto.
var (
	defaultKEX = []string{
		"curve25519-sha256",
		"curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256",
		"ecdh-sha2-nistp384",
		"ecdh-sha2-nistp521",
		"diffie-hellman-group16-sha512",
		"diffie-hellman-group14-sha256",
	}

	strictKEX = []string{
		"curve25519-sha256",
		"curve25519-sha256@libssh.org",
		"diffie-hellman-group16-sha512",
		"diffie-hellman-group14-sha256",
	}

	defaultHostKeyAlgorithms = []string{
		"ssh-ed25519",
		"ecdsa-sha2-nistp256",
		"ecdsa-sha2-nistp384",
		"ecdsa-sha2-nistp521",
		"rsa-sha2-512",
		"rsa-sha2-256",
		"ssh-rsa",
	}

	strictHostKeyAlgorithms = []string{
		"ssh-ed25519",
		"rsa-sha2-512",
		"rsa-sha2-256",
	}
)

// resolveAlgorithms returns the key exchange and host key algorithm lists
// for the given strictness setting.
func resolveAlgorithms(strict bool) (kex, hostKey []string) {
	if strict {
		return strictKEX, strictHostKeyAlgorithms
	}
	return defaultKEX, defaultHostKeyAlgorithms
}
