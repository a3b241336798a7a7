package dialect

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicatedKey insert violates a primary key or unique constraint
var ErrDuplicatedKey = errors.New("duplicated key not allowed")

// DuplicatedKeyError duplicated key reported by the driver, matches ErrDuplicatedKey with errors.Is
type DuplicatedKeyError struct {
	Code    interface{}
	Message string
}

func (e DuplicatedKeyError) Error() string {
	return fmt.Sprintf("%v, code: %v, message: %s", ErrDuplicatedKey, e.Code, e.Message)
}

func (e DuplicatedKeyError) Unwrap() error {
	return ErrDuplicatedKey
}

// decode copies the exported fields of a driver error into dst
func decode(err error, dst interface{}) bool {
	parsedErr, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		return false
	}
	return json.Unmarshal(parsedErr, dst) == nil
}

var (
	sqliteUniqueCodes = map[int]bool{
		1555: true, // SQLITE_CONSTRAINT_PRIMARYKEY
		2067: true, // SQLITE_CONSTRAINT_UNIQUE
	}
	sqliteConstraint   = 19
	postgresUniqueCode = "23505"
	mysqlUniqueCode    = 1062
)

type sqliteErr struct {
	Code         int `json:"Code"`
	ExtendedCode int `json:"ExtendedCode"`
}

type postgresErr struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type mysqlErr struct {
	Number  int    `json:"Number"`
	Message string `json:"Message"`
}

func translateSQLite(err error) error {
	// modernc.org/sqlite keeps its fields private and exposes the extended code
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		if sqliteUniqueCodes[coded.Code()] || (coded.Code() == sqliteConstraint && strings.Contains(err.Error(), "UNIQUE constraint failed")) {
			return DuplicatedKeyError{Code: coded.Code(), Message: err.Error()}
		}
		return err
	}

	var e sqliteErr
	if decode(err, &e) && sqliteUniqueCodes[e.ExtendedCode] {
		return DuplicatedKeyError{Code: e.ExtendedCode, Message: err.Error()}
	}
	return err
}

func translatePostgres(err error) error {
	var e postgresErr
	if decode(err, &e) && e.Code == postgresUniqueCode {
		return DuplicatedKeyError{Code: e.Code, Message: e.Message}
	}
	return err
}

func translateMySQL(err error) error {
	var e mysqlErr
	if decode(err, &e) && e.Number == mysqlUniqueCode {
		return DuplicatedKeyError{Code: e.Number, Message: e.Message}
	}
	return err
}
