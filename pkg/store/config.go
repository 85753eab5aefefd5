package store

// NodeConfig is the node section persisted in the store.
type NodeConfig struct {
	Address     byte
	Baud        byte
	IOAddress   byte
	Description string
}

// NodeConfig reads the node section.
func (s *Store) NodeConfig() (conf NodeConfig, err error) {
	if conf.Address, err = s.Read(AddrNodeAddress); err != nil {
		return
	}
	if conf.Baud, err = s.Read(AddrBaudRate); err != nil {
		return
	}
	if conf.IOAddress, err = s.Read(AddrIOAddress); err != nil {
		return
	}
	conf.Description, err = s.ReadString(AddrDescription, DescriptionSize)
	return
}

// SetNodeConfig writes the node section. The description is truncated
// to fit DescriptionSize including its terminator.
func (s *Store) SetNodeConfig(conf NodeConfig) error {
	if err := s.Write(AddrNodeAddress, conf.Address); err != nil {
		return err
	}
	if err := s.Write(AddrBaudRate, conf.Baud); err != nil {
		return err
	}
	if err := s.Write(AddrIOAddress, conf.IOAddress); err != nil {
		return err
	}
	_, err := s.WriteString(AddrDescription, conf.Description, DescriptionSize)
	return err
}
