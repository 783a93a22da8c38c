package circulation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ResponseCodes lists HTTP status codes ("401") or series ("2xx") a caller is prepared to handle.
type ResponseCodes []string

// SuccessOnly allows any 2xx response.
var SuccessOnly = ResponseCodes{"2xx"}

// Allows reports whether status matches one of the codes or series.
func (c ResponseCodes) Allows(status int) bool {
	code := strconv.Itoa(status)
	series := fmt.Sprintf("%dxx", status/100)

	for _, allowed := range c {
		if allowed == code || allowed == series {
			return true
		}
	}

	return false
}

func (c ResponseCodes) String() string {
	sorted := append([]string(nil), c...)
	sort.Strings(sorted)

	return strings.Join(sorted, ", ")
}
