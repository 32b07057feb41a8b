package cache

// MatchPattern compara una clave con un patrón glob con la sintaxis de Redis
// (KEYS/SCAN MATCH): '*' y '?' aceptan cualquier byte, '/' incluido.
// Soporta clases [abc], [^abc], rangos [a-z] y escape con '\'.
func MatchPattern(pattern, key string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if MatchPattern(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(key) == 0 {
				return false
			}
			key = key[1:]
		case '[':
			if len(key) == 0 {
				return false
			}
			var ok bool
			if pattern, ok = matchClass(pattern[1:], key[0]); !ok {
				return false
			}
			key = key[1:]
			if len(pattern) == 0 {
				// Clase sin cerrar: Redis la da por terminada al final del patrón
				return len(key) == 0
			}
		case '\\':
			if len(pattern) >= 2 {
				pattern = pattern[1:]
			}
			fallthrough
		default:
			if len(key) == 0 || pattern[0] != key[0] {
				return false
			}
			key = key[1:]
		}
		pattern = pattern[1:]
	}
	return len(key) == 0
}

// matchClass evalúa una clase [..] contra c. Devuelve el patrón posicionado
// en el ']' de cierre (o vacío si no lo hay).
func matchClass(pattern string, c byte) (string, bool) {
	negate := len(pattern) > 0 && pattern[0] == '^'
	if negate {
		pattern = pattern[1:]
	}

	matched := false
	for len(pattern) > 0 && pattern[0] != ']' {
		switch {
		case pattern[0] == '\\' && len(pattern) >= 2:
			if pattern[1] == c {
				matched = true
			}
			pattern = pattern[2:]
		case len(pattern) >= 3 && pattern[1] == '-' && pattern[2] != ']':
			lo, hi := pattern[0], pattern[2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			pattern = pattern[3:]
		default:
			if pattern[0] == c {
				matched = true
			}
			pattern = pattern[1:]
		}
	}
	if negate {
		matched = !matched
	}
	return pattern, matched
}
