package migration

import "github.com/roach88/datamgr/internal/datastore"

// AuthSetName names the set returned by Auth.
const AuthSetName = "Auth"

// Auth is the migration set of the password and session token tables.
//
// Version 1 creates auth (one password per account and account type) and
// tokens. Version 2 counts logins and indexes token expiry for
// DeleteByTime.
func Auth() Set {
	uuid := datastore.ColumnDefinition{Name: "UUID", Type: datastore.ColumnType{Kind: datastore.Char, Size: 36}, IsPrimary: true}
	auth := datastore.TableDefinition{
		Name: "auth",
		Columns: []datastore.ColumnDefinition{
			uuid,
			{Name: "accountType", Type: datastore.ColumnType{Kind: datastore.String, Size: 32}, IsPrimary: true},
			{Name: "passwordHash", Type: datastore.ColumnType{Kind: datastore.String, Size: 64}},
			{Name: "passwordSalt", Type: datastore.ColumnType{Kind: datastore.String, Size: 64}},
		},
	}
	tokens := datastore.TableDefinition{
		Name: "tokens",
		Columns: []datastore.ColumnDefinition{
			uuid,
			{Name: "token", Type: datastore.ColumnType{Kind: datastore.String, Size: 64}, IsPrimary: true},
			{Name: "validity", Type: datastore.ColumnType{Kind: datastore.DateTime}},
		},
	}

	auth2 := auth
	auth2.Columns = append(auth.Columns[:len(auth.Columns):len(auth.Columns)], datastore.ColumnDefinition{
		Name: "loginCount", Type: datastore.ColumnType{Kind: datastore.Integer}, Default: datastore.StringPtr("0"),
	})
	tokens2 := tokens
	tokens2.Indices = []datastore.IndexDefinition{{Name: "tokens_validity", Columns: []string{"validity"}}}

	return Set{
		Name: AuthSetName,
		Steps: []Step{
			{Version: 1, Tables: []datastore.TableDefinition{auth, tokens}},
			{Version: 2, Tables: []datastore.TableDefinition{auth2, tokens2}},
		},
	}
}
