package app_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/copterspace/img-tool/app"
	imgerr "github.com/copterspace/img-tool/errors"
)

var _ = Describe("ParseOptions", func() {
	It("splits the image path, the command and its arguments", func() {
		opts, err := ParseOptions([]string{"img-tool", "/images/rootfs.img", "exec", "setup.sh", "--stage", "base"})
		Expect(err).ToNot(HaveOccurred())

		Expect(opts.ImagePath).To(Equal("/images/rootfs.img"))
		Expect(opts.Command).To(Equal("exec"))
		Expect(opts.Args).To(Equal([]string{"setup.sh", "--stage", "base"}))
	})

	It("allows exec without a script", func() {
		opts, err := ParseOptions([]string{"img-tool", "/images/rootfs.img", "exec"})
		Expect(err).ToNot(HaveOccurred())
		Expect(opts.Args).To(BeEmpty())
	})

	It("requires an image path and a command", func() {
		_, err := ParseOptions([]string{"img-tool", "/images/rootfs.img"})
		Expect(err).To(HaveOccurred())
		Expect(imgerr.IsValidation(err)).To(BeTrue())
	})

	It("requires both copy arguments", func() {
		_, err := ParseOptions([]string{"img-tool", "/images/rootfs.img", "copy", "/src"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("copy requires"))
	})

	It("limits size to one argument", func() {
		_, err := ParseOptions([]string{"img-tool", "/images/rootfs.img", "size", "4G", "extra"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("size takes at most one"))
	})

	It("requires a url for load", func() {
		_, err := ParseOptions([]string{"img-tool", "/images/rootfs.img", "load"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("load requires"))
	})

	It("rejects unknown commands", func() {
		_, err := ParseOptions([]string{"img-tool", "/images/rootfs.img", "shrink"})
		Expect(err).To(HaveOccurred())
		Expect(imgerr.IsValidation(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("unknown command 'shrink'"))
	})
})

var _ = Describe("ParseSize", func() {
	It("reads plain byte counts", func() {
		Expect(ParseSize("4457984")).To(Equal(uint64(4457984)))
	})

	It("applies 1024-based suffixes", func() {
		Expect(ParseSize("4K")).To(Equal(uint64(4096)))
		Expect(ParseSize("10M")).To(Equal(uint64(10 * 1024 * 1024)))
		Expect(ParseSize("4G")).To(Equal(uint64(4 * 1024 * 1024 * 1024)))
		Expect(ParseSize("2g")).To(Equal(uint64(2 * 1024 * 1024 * 1024)))
	})

	It("rejects anything else", func() {
		_, err := ParseSize("four gigs")
		Expect(err).To(HaveOccurred())
		Expect(imgerr.IsValidation(err)).To(BeTrue())

		_, err = ParseSize("4T")
		Expect(err).To(HaveOccurred())
	})
})
