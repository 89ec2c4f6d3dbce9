package disk

import (
	"strconv"
	"strings"

	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	boshsys "github.com/cloudfoundry/bosh-utils/system"

	imgerr "github.com/copterspace/img-tool/errors"
)

type sfdiskPartitioner struct {
	logger    boshlog.Logger
	cmdRunner boshsys.CmdRunner
	logTag    string
}

func NewSfdiskPartitioner(logger boshlog.Logger, cmdRunner boshsys.CmdRunner) Partitioner {
	return sfdiskPartitioner{
		logger:    logger,
		cmdRunner: cmdRunner,
		logTag:    "SfdiskPartitioner",
	}
}

// Inspect parses `sfdisk -d` dump output. The accepted grammar is:
//
//	header lines of the form `key: value`; `label-id: 0xNNNNNNNN` carries the
//	disk identifier and `unit: sectors` is required before any entry line;
//	entry lines of the form `<node> : start= N, size= N, type=TT` (the old
//	dump format's `Id=TT` key is accepted too); entries with size 0 are
//	unallocated slots and are skipped.
func (p sfdiskPartitioner) Inspect(devicePath string) (PartitionTable, error) {
	var table PartitionTable

	stdout, _, _, err := p.cmdRunner.RunCommand("sfdisk", "-d", devicePath)
	if err != nil {
		return table, imgerr.WrapValidationError(err, "Obtaining partition listing of '"+devicePath+"'")
	}

	table, err = parseSfdiskDump(stdout)
	if err != nil {
		return table, imgerr.WrapValidationError(err, "Parsing partition listing of '"+devicePath+"'")
	}

	if len(table.Partitions) < 1 || len(table.Partitions) > 2 {
		return table, imgerr.NewValidationErrorf(
			"Image '%s' has %d partitions, expected 1 or 2", devicePath, len(table.Partitions))
	}

	p.logger.Debug(p.logTag, "Inspected '%s': disk id '%s', %d partition(s)",
		devicePath, table.DiskID, len(table.Partitions))

	return table, nil
}

func (p sfdiskPartitioner) DeletePartition(devicePath string, index int) error {
	defer p.cmdRunner.RunCommand("udevadm", "settle") //nolint:errcheck

	_, _, _, err := p.cmdRunner.RunCommand("sfdisk", "--delete", devicePath, strconv.Itoa(index))
	if err != nil {
		return bosherr.WrapErrorf(err, "Deleting partition %d of '%s'", index, devicePath)
	}

	p.logger.Debug(p.logTag, "Deleted partition %d of '%s'", index, devicePath)
	return nil
}

func (p sfdiskPartitioner) AppendPartition(devicePath string, startBytes, sizeBytes uint64, partitionType PartitionType) error {
	if startBytes%SectorSize != 0 || sizeBytes%SectorSize != 0 {
		return bosherr.Errorf(
			"Partition boundaries %d+%d for '%s' are not sector aligned", startBytes, sizeBytes, devicePath)
	}

	defer p.cmdRunner.RunCommand("udevadm", "settle") //nolint:errcheck

	script := "start=" + strconv.FormatUint(startBytes/SectorSize, 10) +
		", size=" + strconv.FormatUint(sizeBytes/SectorSize, 10) +
		", type=" + sfdiskTypeCode(partitionType) + "\n"

	_, _, _, err := p.cmdRunner.RunCommandWithInput(script, "sfdisk", "--append", devicePath)
	if err != nil {
		return bosherr.WrapErrorf(err, "Appending partition to '%s'", devicePath)
	}

	p.logger.Debug(p.logTag, "Appended partition [%d, %d) to '%s'", startBytes, startBytes+sizeBytes, devicePath)
	return nil
}

func (p sfdiskPartitioner) GetDeviceSizeInBytes(devicePath string) (uint64, error) {
	stdout, _, _, err := p.cmdRunner.RunCommand("blockdev", "--getsize64", devicePath)
	if err != nil {
		return 0, bosherr.WrapErrorf(err, "Getting block device size of '%s'", devicePath)
	}

	size, err := strconv.ParseUint(strings.TrimSpace(stdout), 10, 64)
	if err != nil {
		return 0, bosherr.WrapErrorf(err, "Converting block device size of '%s'", devicePath)
	}

	return size, nil
}

func parseSfdiskDump(dump string) (PartitionTable, error) {
	var table PartitionTable
	unitSectors := false

	for _, line := range strings.Split(dump, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "label-id:") {
			id := strings.TrimSpace(strings.TrimPrefix(line, "label-id:"))
			table.DiskID = strings.ToLower(strings.TrimPrefix(id, "0x"))
			continue
		}

		if strings.HasPrefix(line, "unit:") {
			unitSectors = strings.TrimSpace(strings.TrimPrefix(line, "unit:")) == "sectors"
			continue
		}

		node, fields, found := strings.Cut(line, " : ")
		if !found {
			continue
		}
		_ = node

		if !unitSectors {
			return table, bosherr.Error("Partition entry found before a 'unit: sectors' header")
		}

		partition, err := parseSfdiskEntry(fields)
		if err != nil {
			return table, err
		}
		if partition.SizeSectors == 0 {
			continue
		}

		partition.Index = len(table.Partitions) + 1
		table.Partitions = append(table.Partitions, partition)
	}

	return table, nil
}

func parseSfdiskEntry(fields string) (Partition, error) {
	var partition Partition

	for _, field := range strings.Split(fields, ",") {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "start":
			start, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return partition, bosherr.WrapErrorf(err, "Parsing partition start '%s'", value)
			}
			partition.StartSector = start
		case "size":
			size, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return partition, bosherr.WrapErrorf(err, "Parsing partition size '%s'", value)
			}
			partition.SizeSectors = size
		case "type", "Id":
			partition.Type = partitionTypeFromCode(value)
		}
	}

	return partition, nil
}

func partitionTypeFromCode(code string) PartitionType {
	switch strings.ToLower(code) {
	case "83":
		return PartitionTypeLinux
	case "b", "c", "e", "6":
		return PartitionTypeFAT
	default:
		return PartitionTypeUnknown
	}
}

func sfdiskTypeCode(partitionType PartitionType) string {
	switch partitionType {
	case PartitionTypeLinux:
		return "83"
	case PartitionTypeFAT:
		return "c"
	default:
		return "83"
	}
}
