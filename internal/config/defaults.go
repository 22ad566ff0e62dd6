package config

// Prefix is the namespace of every synthesis option.
const Prefix = "synth.expropt."

// Keys of the synthesis options.
const (
	Verbose           = Prefix + "verbose"
	CleanTmpFiles     = Prefix + "clean_tmp_files"
	DefaultLoad       = Prefix + "default_load"
	DrivingCell       = Prefix + "driving_cell"
	LibertyTypical    = Prefix + "liberty_tt_typtemp"
	LibertySlowHot    = Prefix + "liberty_ss_hightemp"
	LibertyFastCold   = Prefix + "liberty_ff_lowtemp"
	LibertyFastHot    = Prefix + "liberty_ff_hightemp"
	QRCMax            = Prefix + "qrc_rcmax"
	QRCMin            = Prefix + "qrc_rcmin"
	QRCTyp            = Prefix + "qrc_rctyp"
	HighTemp          = Prefix + "hightemp"
	LowTemp           = Prefix + "lowtemp"
	TypTemp           = Prefix + "typtemp"
	SearchPath        = Prefix + "searchpath"
	LEF               = Prefix + "lef"
	CapTable          = Prefix + "captable"
	TimingConstraints = Prefix + "timing_constraint_sdf"
	UseConstraints    = Prefix + "abc.use_constraints"
	VectorizeAllPorts = Prefix + "vectorize_all_ports"
	CacheLocal        = Prefix + "cache.local"
	CacheGlobal       = Prefix + "cache.global"
	CacheInvalidate   = Prefix + "cache.invalidate"
	CellLibQDI        = Prefix + "act_cell_lib_qdi"
	CellLibQDINS      = Prefix + "act_cell_lib_qdi_namespace"
	CellLibQDIWire    = Prefix + "act_cell_lib_qdi_wire_type"
	CellLibBD         = Prefix + "act_cell_lib_bd"
	CellLibBDNS       = Prefix + "act_cell_lib_bd_namespace"
	CellLibBDWire     = Prefix + "act_cell_lib_bd_wire_type"
	InstallRoot       = Prefix + "install_root"
	BackendPrefix     = Prefix + "backend_prefix"
	ABCPath           = Prefix + "abc_path"
	YosysPath         = Prefix + "yosys_path"
	GenusPath         = Prefix + "genus_path"
	V2ActPath         = Prefix + "v2act_path"
)

// Defaults returns a store holding the default option values.
func Defaults() *Store {
	s := New()
	s.SetDefaultInt(Verbose, 1)
	s.SetDefaultInt(CleanTmpFiles, 1)
	s.SetDefaultReal(DefaultLoad, 1.0)
	s.SetDefaultInt(VectorizeAllPorts, 0)
	s.SetDefaultString(CellLibQDINS, "syn")
	s.SetDefaultString(CellLibQDIWire, "sdtexprchan<1>")
	s.SetDefaultString(CellLibBDNS, "syn")
	s.SetDefaultString(CellLibBDWire, "bool")
	s.SetDefaultString(BackendPrefix, "expropt")
	for _, key := range []string{
		LibertyTypical, LibertySlowHot, LibertyFastCold, LibertyFastHot,
		QRCMax, QRCMin, QRCTyp, SearchPath, LEF, CapTable, TimingConstraints,
	} {
		s.SetDefaultString(key, None)
	}
	return s
}
