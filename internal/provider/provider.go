package provider

/* A provider reads secret material (signing keys, bind passwords, session keys)
*  from a source outside the configuration file. Each provider defines the
*  configuration parameters it needs to locate the data.
 */
type Provider interface {
	Open() error
	Read() ([]byte, error)
	Close() error
}
