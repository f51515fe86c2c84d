package dbconfig

// Field is the credential field a reference resolves
type Field string

const (
	FieldUser     Field = "user"
	FieldPassword Field = "password"
)

// Reference is a credential reference. Exactly one variant exists per
// credential source and each variant carries its own companion field.
type Reference interface {
	Source() Source
	Field() Field

	reference()
}

// PlainValue is a literal value written in the config
type PlainValue struct {
	For   Field
	Value string
}

// SecretsManagerSecret refers to a Secrets Manager secret by ID
type SecretsManagerSecret struct {
	For      Field
	SecretID string
}

// SSMParameter refers to a Parameter Store parameter by name
type SSMParameter struct {
	For  Field
	Name string
}

// EnvVar refers to an environment variable of the running process
type EnvVar struct {
	For  Field
	Name string
}

func (PlainValue) Source() Source           { return SourcePlain }
func (SecretsManagerSecret) Source() Source { return SourceSecretsManager }
func (SSMParameter) Source() Source         { return SourceSSMParameter }
func (EnvVar) Source() Source               { return SourceEnvVar }

func (r PlainValue) Field() Field           { return r.For }
func (r SecretsManagerSecret) Field() Field { return r.For }
func (r SSMParameter) Field() Field         { return r.For }
func (r EnvVar) Field() Field               { return r.For }

func (PlainValue) reference()           {}
func (SecretsManagerSecret) reference() {}
func (SSMParameter) reference()         {}
func (EnvVar) reference()               {}

// newReference builds the variant for a source. Unknown sources are treated as
// plain, the validator rejects them before this point.
func newReference(field Field, source Source, plain, key, env string) Reference {
	switch source {
	case SourceSecretsManager:
		return SecretsManagerSecret{For: field, SecretID: key}
	case SourceSSMParameter:
		return SSMParameter{For: field, Name: key}
	case SourceEnvVar:
		return EnvVar{For: field, Name: env}
	default:
		return PlainValue{For: field, Value: plain}
	}
}
